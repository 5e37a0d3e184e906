// Package governance 提供工具注册中心与工具治理器。
//
// Registry 保存工具描述（输入 Schema、风险等级、是否有副作用）与可调用函数；
// Governor 在任何工具执行前给出 allow / deny / require_approval 决定：
// 角色白名单与 Schema 校验失败即拒绝，高风险或超过阈值的中风险调用需要人工审批。
// Governor 对每次调用无状态，同样的输入总是得到同样的决定。
package governance
