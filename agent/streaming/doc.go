// 版权所有 2024 CareerFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// 包 streaming 把 websocket 连接适配为会话事件出口：
// 出站 {agent,type,content,tool,handoff}，入站 {content}。
package streaming
