// Package config provides loading and environment overlay for sift's runtime
// configuration. It exposes a Default() baseline, JSON or YAML file loading
// and SIFT_* environment overrides.
//
// Example:
//
//	cfg, err := config.Load("/etc/sift.yaml")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
package config
