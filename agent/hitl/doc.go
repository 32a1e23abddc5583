// Package hitl 提供 Human-in-the-Loop 会话输入桥接。
//
// InputBridge 是入站连接与 HumanProxy 之间的 FIFO 交接队列：
// 读取协程只负责 Submit，会话回合在 HumanProxy.Reply 中阻塞等待 Fetch，
// 两条执行路径互不阻塞。连接断开时关闭桥或取消 ctx，等待立即返回。
package hitl
