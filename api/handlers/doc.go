// 版权所有 2024 CareerFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package handlers 提供 CareerFlow HTTP 与 websocket 端点的请求处理器。

# 核心类型

  - ChatHandler       — /ws/chat，把一条 websocket 连接绑定到一个辅导会话
  - TranscriptHandler — 已持久化会话的列表、回放与删除，以及活跃会话列表
  - ProfileHandler    — 简历上传，写入画像记忆供 ProfilerAgent 检索
  - AgentHandler      — 会话阵容目录
  - HealthHandler     — /health、/healthz、/ready 与 /version
  - Response          — 统一 JSON 响应结构（success + data + error + timestamp）

# 会话连接

ChatHandler 为每条连接启动三条并发通道：回合循环、入站读取与保活 ping。
入站 {"content": "..."} 按到达顺序进入输入桥，由用户代理在等待回合中取出。
对端断开以 conversation.ErrDisconnected 作为取消原因结束会话；
会话以 end_signal 或 max_turns 结束时以 1000 关闭，参与者失败时以 1011 关闭。

# 错误处理

WriteError 把 *types.Error 映射为 HTTP 状态码，其它错误一律以 INTERNAL_ERROR
返回且不透出原始信息。
*/
package handlers
