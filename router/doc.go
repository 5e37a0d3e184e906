// Package router 将分类结果映射到专家名称；置信度过低、并列或未知标签时回退到默认专家。
package router
