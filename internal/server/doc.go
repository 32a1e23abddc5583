// 版权所有 2024 CareerFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 封装 CareerFlow 两个监听端口（网关与 /metrics）的 http.Server 生命周期.

Manager 的状态只会 idle -> serving -> stopped 单向前进，停止后不能重启.
网关端口的读写超时保持为 0，请求头超时交给 ReadHeaderTimeout.
/ws/chat 连接在劫持后脱离 http.Server 的跟踪，
聊天处理器通过 OnShutdown 注册排空回调，Shutdown 并发执行这些回调并等到结束或超时.
*/
package server
