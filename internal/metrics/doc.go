// 版权所有 2024 CareerFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、会话、工具、
LLM、缓存与数据库。

# 核心类型

  - Collector：持有全部向量指标。NewCollector 注册到默认 registry，
    NewCollectorWithRegistry 用于测试或多实例隔离。
  - SessionObserver：实现 conversation.Observer，记录会话数、
    每位参与者的发言耗时与终止原因。

# 接入点

  - Collector.CountingSink 包装 websocket 事件下发
  - Collector.WrapProvider 包装 llm.Provider
  - Collector.RecordToolCall 可直接作为工具执行器的观察回调
  - Collector.RecordHumanWait 对接人类输入代理的等待回调
  - Collector.RegisterPool 注册连接池收集器，抓取时读取 database 与 redis 的池统计
*/
package metrics
