// 版权所有 2024 CareerFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 coach 实现职业辅导团队的参与者。

# 参与者

  - TriageAgent：gateway，唯一与用户对话的 Agent，无工具
  - ProfilerAgent：analyze_resume，首轮前由 CVHook 检索已上传简历
  - SkillAgent：analyze_skill_gap 与 brave_web_search，工具调用后反思
  - LearningPlanAgent / GlobalJobsAgent：brave_web_search，工具调用后反思

# Assistant

每个 Assistant 维护 10 条消息的短期记忆作为模型上下文，可选地从共享长期记忆
召回相关内容，并按 tiktoken 计数裁剪到模型上下文长度。模型请求工具时，
每个调用产生 tool_call 与 tool_result 两条消息；开启反思时再调用一次模型
得到最终回复，否则以工具结果拼接为回复。回复以同伴名字开头或包含
"hand off to <Agent>" 时记为 handoff 消息。
*/
package coach
