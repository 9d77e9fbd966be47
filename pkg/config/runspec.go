package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloudcycle/cloudcycle/pkg/engine"
)

// BucketName builds a globally unique bucket name: <prefix>-<UTC timestamp>-<random>.
func BucketName(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%s", strings.ToLower(prefix), now.UTC().Format("20060102150405"), suffix)
}

// RunSpec converts the configuration into the engine's run description.
// A bucket name is generated when none is configured.
func (c *Config) RunSpec(now time.Time) engine.RunSpec {
	spec := engine.RunSpec{
		Region: c.Region,
		Upload: engine.UploadSpec{
			LocalPath: c.Upload.FilePath,
			Key:       c.Upload.ObjectKey,
		},
		Message: engine.Message{
			Body:  c.Message.Body,
			Title: c.Message.Title,
		},
	}

	if c.Has("compute") {
		tags := make(map[string]string, len(c.Compute.Tags))
		for k, v := range c.Compute.Tags {
			tags[k] = v
		}
		spec.Compute = &engine.ComputeSpec{
			ImageID:      c.Compute.ImageID,
			InstanceType: c.Compute.InstanceType,
			KeyName:      c.Compute.KeyName,
			Tags:         tags,
		}
	}

	if c.Has("storage") {
		name := c.Storage.Name
		if name == "" {
			name = BucketName(c.Storage.Prefix, now)
		}
		spec.Storage = &engine.StorageSpec{Name: name, Region: c.Region}
	}

	if c.Has("queue") {
		spec.Queue = &engine.QueueSpec{
			Name: c.Queue.Name,
			Attributes: map[string]string{
				"DelaySeconds":      strconv.Itoa(c.Queue.DelaySeconds),
				"VisibilityTimeout": strconv.Itoa(c.Queue.VisibilityTimeout),
			},
		}
	}

	return spec
}

// EngineOptions returns the orchestrator tuning from the run settings.
// Collaborators such as the ledger and telemetry are left for the caller.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		Provider:    c.Provider,
		Parallelism: c.Run.Parallelism,
		ReadyPoll: engine.PollPolicy{
			MaxAttempts: c.Run.ReadyAttempts,
			Interval:    c.Run.ReadyInterval,
		},
		TerminationPoll: engine.PollPolicy{
			MaxAttempts: c.Run.TerminationAttempts,
			Interval:    c.Run.TerminationInterval,
		},
		ReceiveWait:     c.Run.ReceiveWait,
		TeardownTimeout: c.Run.TeardownTimeout,
	}
}
