// Package config loads the settings of a cloudcycle run.
//
// Two file formats are accepted. Dotenv files use flat keys and are the
// format most existing deployments already have:
//
//	AWS_ACCESS_KEY_ID=...
//	AWS_SECRET_ACCESS_KEY=...
//	REGION=us-east-1
//	AMI_ID=ami-0abcdef1234567890
//	queue_name=app-tier-queue
//	file_path=./payload.txt
//	object_name=payload.txt
//
// YAML files (.yaml, .yml) map onto Config directly and additionally expose
// telemetry settings. Every flat key can be overridden from the environment
// with the CLOUDCYCLE_ prefix, e.g. CLOUDCYCLE_REGION or CLOUDCYCLE_LOG_LEVEL.
//
// Load fills defaults and validates the result. Any problem is reported as a
// *ConfigError before a single resource is provisioned.
package config
