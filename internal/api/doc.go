// Package api 暴露 REST 接口，供外部驱动三步签名编排：
// 管理钱包会话、创建流程运行、触发各个步骤并查询日志流。
package api
