/*
Package config 加载与校验服务配置。

Load 依次叠加三层：DefaultConfig、YAML 文件（WithFile）、环境变量。
环境变量名由前缀与各级 env 标签拼成，例如 PAYROLL_ENGINE_MAX_ITERATIONS；
列表用逗号分隔，数值映射写成 "tool=50000, other=10"。

Validate 使用 validator 标签检查取值，错误里的字段路径与 YAML 键一致。

Reloader 监听配置文件，变化时只把 governance 与 router 两段推给订阅者，
其余段的变化记录告警，重启后生效。
*/
package config
