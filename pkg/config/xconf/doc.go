// Package xconf 基于 koanf v2 加载 YAML/JSON 配置，并可借助 fsnotify 监听文件变更。
//
//	cfg, err := xconf.New("/etc/rsemctl/config.yaml")
//	if err != nil {
//	    return err
//	}
//	var c Config
//	if err := cfg.Unmarshal("", &c); err != nil {
//	    return err
//	}
//
// 热更新：
//
//	w, err := xconf.Watch(cfg, func(cfg xconf.Config, err error) {
//	    if err == nil {
//	        applyLogLevel(cfg.Client().String("log.level"))
//	    }
//	})
//	w.StartAsync()
//	defer w.Stop()
//
// Watch 监听配置文件所在目录，编辑器先删后建或 rename 覆盖都能被感知；
// 短时间内的多次变更按 debounce 合并为一次 Reload。
package xconf
