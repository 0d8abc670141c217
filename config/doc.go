// Package config 提供 SkillBridge 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（前缀 SKILLBRIDGE）的顺序合并，
// 覆盖宿主身份、技能清单来源、调度、传输、状态存储、日志与遥测。
// Validate 在启动阶段发现缺失的宿主身份或技能清单，
// 返回 INVALID_CONFIGURATION 错误。
package config
