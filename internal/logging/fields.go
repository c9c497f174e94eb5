package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供站点/域名/内容标识字段，供网关请求日志复用。
func RequestFields(siteKey, host, cid, contract string, pinned bool) logrus.Fields {
	return logrus.Fields{
		"site":     siteKey,
		"host":     host,
		"cid":      cid,
		"contract": contract,
		"pinned":   pinned,
	}
}
