// Package payroll 提供员工目录与七个薪资工具。
//
// 工具通过 Service.Register 注册到 governance.Registry；部门汇总工具为
// medium 风险，其治理数量为部门月度总薪资，超过阈值时需要人工审批。
package payroll
