// Copyright (c) CareerFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 careerflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、llm、api 等上层模块
提供统一的类型契约，避免循环依赖。

# 核心类型

  - Message / MessageKind — 会话历史条目（text、tool_call、tool_result、handoff）
  - ToolCall              — 参与者发起的工具调用
  - Error / ErrorCode     — 结构化错误，含 HTTP 状态码与 Retryable 标记

# 主要能力

  - Context 传播：WithTraceID / WithRequestID / WithSessionID / WithUserID / WithParticipant，
    CorrelationID 取最具体的一个作为上游请求的关联 id
  - 错误工具链：WrapError / AsError / IsErrorCode / IsRetryable / HTTPStatusFor
*/
package types
