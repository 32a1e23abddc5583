// 版权所有 2024 CareerFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 conversation 提供带人工介入的多智能体群聊编排。

# 概述

一个会话由一个 gateway（唯一可以直接与用户对话的 Agent）、若干 specialist
以及一个 human proxy 组成。Session 负责回合循环：向 Selector 询问下一位
发言者，调用该参与者，把它产生的全部消息追加到历史，再判断是否终止。

# 核心接口

  - Participant：参与者接口（ID / Capabilities / Reply）
  - Selector：发言人选择器，输入历史输出参与者 ID
  - FirstTurnHook：参与者首轮前的一次性钩子，可短路该轮
  - EventSink：事件出口，Session 产生的每条消息都会转换为 Event 推送
  - Terminator：结束信号检测
  - Observer：会话进度观察者（持久化、指标）

# 内置实现

  - HumanInTheLoopSelector：以 gateway 开场；上一条消息以问号结尾或包含
    "please provide" / "can you" / "user input" 时交给用户；否则在 specialist
    之间按声明顺序轮转。轮转位置每次都从历史倒序扫描得出，不保存状态。
  - KeywordTerminator：gateway 在用户发言后说出 TERMINATE 时结束
  - Manager / CacheIndex：按会话 ID 管理存活会话，可选同步到 Redis

# 终止原因

max_turns、end_signal、disconnected（取消原因为 ErrDisconnected）、
cancelled、error（参与者失败，不重试）。
*/
package conversation
