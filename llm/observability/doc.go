// 版权所有 2024 CareerFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 observability 为 LLM 调用提供指标、链路与成本核算。

  - Metrics：基于 OpenTelemetry Meter 的请求计数、Token 计数、延迟与成本直方图，
    以及工具调用计数。
  - InstrumentedProvider：包装 llm.Provider，每次补全产生一个 llm.completion span。
  - CostCalculator / CostTracker：OpenAI 与 Azure OpenAI 价格表（USD / 1M tokens），
    进程级汇总并按 Agent 拆分，服务退出时写入日志。
*/
package observability
