// 版权所有 2024 CareerFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// 包 tools 提供模型可调用工具的注册、限流与并发执行，以及 brave_web_search 搜索工具。
package tools
