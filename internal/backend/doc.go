// Package backend 封装内容寻址存储的访问方式。网关只依赖 Backend 接口：
// 根据 CID 与对象 key 发起 GET/HEAD（可带 Range），以及校验调用方指定的 CID
// 是否真实存在。gateway 实现走公共 HTTP 网关，kubo 实现走本地节点的 RPC。
package backend
