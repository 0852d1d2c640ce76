package main

// Blank imports run each operator package's init, which adds it to the
// default registry.
import (
	_ "github.com/alexisbeaulieu97/execute-any-operator/internal/operators/bash"
	_ "github.com/alexisbeaulieu97/execute-any-operator/internal/operators/hdfs"
	_ "github.com/alexisbeaulieu97/execute-any-operator/internal/operators/hive"
	_ "github.com/alexisbeaulieu97/execute-any-operator/internal/operators/http"
	_ "github.com/alexisbeaulieu97/execute-any-operator/internal/operators/kubernetes"
	_ "github.com/alexisbeaulieu97/execute-any-operator/internal/operators/python"
	_ "github.com/alexisbeaulieu97/execute-any-operator/internal/operators/remotebash"
	_ "github.com/alexisbeaulieu97/execute-any-operator/internal/operators/s3"
)
