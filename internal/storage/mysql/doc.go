// Package mysql 提供流程运行状态的 MySQL 持久化实现，
// 启动时通过内嵌的迁移文件初始化表结构。
package mysql
