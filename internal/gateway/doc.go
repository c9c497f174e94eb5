// Package gateway 实现内容解析与改写引擎：路径候选、跳转规则、顺序回退抓取、
// 媒体区间响应以及 HTML/CSS 链接改写，并由 Handler 组合成 Fiber 请求处理器。
//
// 所有查找表在启动时构建一次（DefaultTables），之后只读并按引用传入各组件；
// 单个请求内的抓取严格顺序执行、命中即返回，不做重试。
package gateway
