// Package flow 实现三步多签名人编排：主签名人构造交易、
// 副签名人通过中继副签、主签名人聚合签名并提交上链。
package flow
