/*
Package types 提供服务范围内共享的基础类型。

types 是最底层的公共包，不依赖任何内部包，为 graph、governance、approval、
api 等上层模块提供统一的类型契约，避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误体系，覆盖执行图的完整错误分类
    （InvalidSession、ToolDenied、AlreadyResolved、CheckpointWriteFailure 等），
    含 HTTP 状态码与 Retryable 标记
  - Schema：工具参数的 JSON Schema 子集，Object/Need/Field 构建
  - Identity：经过认证的调用方身份（JWT subject + roles）

# 主要能力

  - Context 传播：WithIdentity / IdentityFrom
  - 错误工具链：AsError / CodeOf / IsRetryable / StatusFor
*/
package types
