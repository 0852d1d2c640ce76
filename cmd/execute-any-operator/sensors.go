package main

import (
	"github.com/spf13/cobra"

	hdfssensor "github.com/alexisbeaulieu97/execute-any-operator/internal/operators/hdfs"
	s3sensor "github.com/alexisbeaulieu97/execute-any-operator/internal/operators/s3"
)

func newS3KeySensorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "s3-key-sensor BUCKET_KEY",
		Short: "Waits for a key to be present in a S3 bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := newArgSet(cmd)
			s.set("bucket_key", args[0])
			s.task()
			s.sensor()
			s.str("bucket-name", "bucket_name")
			s.boolean("wildcard-match", "wildcard_match")
			s.str("aws-conn-id", "aws_conn_id")
			s.boolean("verify", "verify")
			opArgs, err := s.result()
			if err != nil {
				return err
			}
			return a.execute(cmd, invocation{ref: s3sensor.ClassName, args: opArgs})
		},
	}

	addTaskFlags(cmd)
	addSensorFlags(cmd)
	cmd.Flags().String("bucket-name", "", "Bucket name, only needed when BUCKET_KEY is not a full s3:// url")
	cmd.Flags().Bool("wildcard-match", false, "Interpret BUCKET_KEY as a Unix wildcard pattern")
	cmd.Flags().String("aws-conn-id", "aws_default", "Connection id of the S3 connection")
	cmd.Flags().Bool("verify", true, "Verify TLS certificates of the S3 endpoint")

	return cmd
}

func newHdfsSensorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "hdfs-sensor FILEPATH",
		Aliases: []string{"arrow-hdfs-sensor"},
		Short:   "Waits for a file or folder to land in HDFS",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := newArgSet(cmd)
			s.set("filepath", args[0])
			s.task()
			s.sensor()
			s.str("hdfs-conn-id", "hdfs_conn_id")
			s.slice("ignored-ext", "ignored_ext")
			s.boolean("ignore-copying", "ignore_copying")
			s.float("file-size", "file_size")
			opArgs, err := s.result()
			if err != nil {
				return err
			}
			return a.execute(cmd, invocation{ref: hdfssensor.ClassName, args: opArgs})
		},
	}

	addTaskFlags(cmd)
	addSensorFlags(cmd)
	cmd.Flags().String("hdfs-conn-id", "hdfs_default", "Connection id of the WebHDFS connection")
	cmd.Flags().StringSlice("ignored-ext", []string{"_COPYING_"}, "File extensions to ignore")
	cmd.Flags().Bool("ignore-copying", true, "Ignore files that are still being copied")
	cmd.Flags().Float64("file-size", 0, "Minimum file size in MB")

	return cmd
}
