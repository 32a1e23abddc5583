// Copyright (c) CareerFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 CareerFlow 服务端程序入口。

# 概述

cmd/careerflow 是多 Agent 职业辅导服务的可执行入口，提供 websocket
会话服务、终端聊天客户端、数据库迁移、健康检查和版本查询等子命令。
程序支持 YAML 配置文件与 CAREERFLOW_ 环境变量、结构化日志（zap）、
Prometheus 指标与 OpenTelemetry 链路追踪。

# 核心类型

  - Server          — 主服务器，装配存储、记忆、LLM、工具与辅导团队，管理 HTTP 与 Metrics 双端口
  - Middleware      — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - credentialCheck — 单一凭据校验（API Key 或 JWT），由 Authenticate 组合

# 主要能力

  - 子命令：serve、chat、migrate、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、Metrics、
    RequestLogger、CORS、RateLimiter（基于 IP）、Authenticate
  - 未配置 LLM key 时仍可启动，只提供健康检查与转写查询
  - 优雅关闭：信号监听 → 关闭 websocket 会话与 HTTP → 关闭 Metrics → 后台任务 → 存储 → 遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
