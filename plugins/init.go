// Package plugins registers all built-in plugins.
package plugins

import (
	"firestige.xyz/groundview/pkg/plugin"
	"firestige.xyz/groundview/plugins/reporter/console"
	"firestige.xyz/groundview/plugins/reporter/jsonl"
	"firestige.xyz/groundview/plugins/reporter/kafka"
)

func init() {
	plugin.RegisterReporter("console", console.NewConsoleReporter)
	plugin.RegisterReporter("jsonl", jsonl.NewJSONLReporter)
	plugin.RegisterReporter("kafka", kafka.NewKafkaReporter)
}
