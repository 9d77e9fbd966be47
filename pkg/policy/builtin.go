package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		bucketNamingPolicy(),
		queueNamingPolicy(),
		imageIDPolicy(),
		requiredTagsPolicy(),
		instanceTypePolicy(),
	}
}

func builtin(name, description string, severity Severity, tags []string, rego string) Policy {
	now := time.Now()
	return Policy{
		Name:        name,
		Description: description,
		Severity:    severity,
		Enabled:     true,
		Tags:        tags,
		Metadata:    map[string]interface{}{"source": "builtin"},
		CreatedAt:   now,
		UpdatedAt:   now,
		Rego:        rego,
	}
}

// bucketNamingPolicy enforces object-storage bucket naming rules.
func bucketNamingPolicy() Policy {
	return builtin("bucket-naming",
		"Bucket names must be 3-63 lowercase letters, digits, dots or hyphens",
		SeverityError, []string{"naming", "storage"}, `package cloudcycle.policies.bucket

import rego.v1

deny contains violation if {
	name := input.storage.name
	not regex.match("^[a-z0-9][a-z0-9.-]*[a-z0-9]$", name)
	violation := {
		"message": "bucket name must contain only lowercase letters, digits, dots and hyphens and start and end with a letter or digit",
		"resource": name,
	}
}

deny contains violation if {
	name := input.storage.name
	count(name) < 3
	violation := {"message": "bucket name must be at least 3 characters long", "resource": name}
}

deny contains violation if {
	name := input.storage.name
	count(name) > 63
	violation := {"message": "bucket name must be at most 63 characters long", "resource": name}
}

deny contains violation if {
	name := input.storage.name
	contains(name, "..")
	violation := {"message": "bucket name must not contain consecutive dots", "resource": name}
}

deny contains violation if {
	name := input.storage.name
	regex.match("^[0-9]+\\.[0-9]+\\.[0-9]+\\.[0-9]+$", name)
	violation := {"message": "bucket name must not be formatted as an IP address", "resource": name}
}
`)
}

// queueNamingPolicy enforces queue naming rules.
func queueNamingPolicy() Policy {
	return builtin("queue-naming",
		"Queue names must be 1-80 alphanumeric characters, hyphens or underscores",
		SeverityError, []string{"naming", "queue"}, `package cloudcycle.policies.queue

import rego.v1

deny contains violation if {
	name := input.queue.name
	not regex.match("^[A-Za-z0-9_-]+(\\.fifo)?$", name)
	violation := {
		"message": "queue name must contain only alphanumeric characters, hyphens and underscores",
		"resource": name,
	}
}

deny contains violation if {
	name := input.queue.name
	count(name) > 80
	violation := {"message": "queue name must be at most 80 characters long", "resource": name}
}
`)
}

// imageIDPolicy checks the machine image identifier format.
func imageIDPolicy() Policy {
	return builtin("image-id",
		"Compute instances must boot a well-formed machine image id",
		SeverityError, []string{"compute"}, `package cloudcycle.policies.image

import rego.v1

deny contains violation if {
	image := input.compute.image_id
	not regex.match("^ami-([0-9a-f]{8}|[0-9a-f]{17})$", image)
	violation := {"message": "image id must look like ami- followed by 8 or 17 hex digits", "resource": image}
}
`)
}

// requiredTagsPolicy requires a Name tag on compute instances.
func requiredTagsPolicy() Policy {
	return builtin("required-tags",
		"Compute instances must carry a non-empty Name tag",
		SeverityError, []string{"compute", "tagging"}, `package cloudcycle.policies.tags

import rego.v1

deny contains violation if {
	input.compute
	not input.compute.tags.Name
	violation := {"message": "compute instance must have a Name tag"}
}

deny contains violation if {
	input.compute.tags.Name == ""
	violation := {"message": "compute instance Name tag must not be empty"}
}
`)
}

// instanceTypePolicy warns about instance sizes outside the free tier.
func instanceTypePolicy() Policy {
	return builtin("instance-type",
		"Warns when the instance type is outside the free tier",
		SeverityWarning, []string{"compute", "cost"}, `package cloudcycle.policies.cost

import rego.v1

free_tier := {"t2.micro", "t3.micro"}

deny contains violation if {
	itype := input.compute.instance_type
	not free_tier[itype]
	violation := {"message": sprintf("instance type %s is outside the free tier and may incur charges", [itype]), "resource": itype}
}
`)
}
