// Package config 加载 careerflow 服务配置.
//
// 来源依次叠加：DefaultConfig、YAML 文件（支持 ${VAR:-default} 展开，
// 未知字段报错）、CAREERFLOW_ 前缀的环境变量. 任一变量都可以改用
// <KEY>_FILE 指向 secret 文件. Validate 一次返回全部问题.
package config
