// Package script 负责获取流程所需的链上脚本字节码。
package script
