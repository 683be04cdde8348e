package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// LoadFields 提供 id/状态/内存命中字段，供注册表加载日志复用。
func LoadFields(id, state string, memoryHit bool) logrus.Fields {
	return logrus.Fields{
		"action":     "terminology_load",
		"id":         id,
		"state":      state,
		"memory_hit": memoryHit,
	}
}

// RequestFields 提供请求 ID 与路由字段，供诊断服务日志复用。
func RequestFields(requestID, method, path string, status int) logrus.Fields {
	return logrus.Fields{
		"action":     "http_request",
		"request_id": requestID,
		"method":     method,
		"path":       path,
		"status":     status,
	}
}
