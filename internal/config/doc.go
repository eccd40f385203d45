// Package config provides configuration parsing for srasm projects.
//
// The configuration is stored in srasm.json (or srasm.yaml) at the project
// root. Secrets are usually left out of the file and read from the
// environment: OPENAI_API_KEY, AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "address": ":3000",
//	    "allowedOrigin": "https://app.example.com",
//	    "rateLimit": 2,
//	    "metrics": true
//	  },
//	  "explain": {
//	    "provider": "openai",
//	    "model": "gpt-4o-mini",
//	    "timeout": "30s"
//	  },
//	  "store": {"defaultEquality": "structural"},
//	  "offload": {"enabled": true, "threshold": 5000, "timeout": "2s"},
//	  "history": {"path": ".srasm/history"},
//	  "reports": {"sink": "s3", "bucket": "srasm-reports", "maxAge": "720h"},
//	  "log": {"level": "info", "format": "json"}
//	}
//
// # Usage
//
//	cfg, err := config.LoadFromWorkingDir()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	srv := server.New(cfg.ServerConfig(), explainer, server.WithLogger(cfg.Logger(os.Stderr)))
package config
