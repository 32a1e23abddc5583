// 版权所有 2024 CareerFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 persistence 把会话记录写入关系数据库（gorm，支持 PostgreSQL、MySQL、SQLite）。

  - TranscriptStore：chat_sessions 与 chat_messages 两张表，消息按会话内序号保存，
    读取时恢复原始历史顺序
  - Recorder：conversation.Observer 实现，会话每追加一条消息即落库，结束时写入终止原因

表结构由 internal/migration 的迁移脚本创建。
*/
package persistence
