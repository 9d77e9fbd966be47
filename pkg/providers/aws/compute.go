package aws

import (
	"context"
	"fmt"
	"sort"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/cloudcycle/cloudcycle/pkg/engine"
)

// ProvisionCompute launches a single instance.
func (a *Adapter) ProvisionCompute(ctx context.Context, spec engine.ComputeSpec) (engine.Handle, error) {
	in := &ec2.RunInstancesInput{
		ImageId:      awssdk.String(spec.ImageID),
		InstanceType: ec2types.InstanceType(spec.InstanceType),
		MinCount:     awssdk.Int32(1),
		MaxCount:     awssdk.Int32(1),
	}
	if spec.KeyName != "" {
		in.KeyName = awssdk.String(spec.KeyName)
	}
	if len(spec.Tags) > 0 {
		in.TagSpecifications = []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeInstance,
			Tags:         toTags(spec.Tags),
		}}
	}

	out, err := a.ec2.RunInstances(ctx, in)
	if err != nil {
		return engine.Handle{}, fmt.Errorf("run instances: %w", err)
	}
	if len(out.Instances) == 0 || out.Instances[0].InstanceId == nil {
		return engine.Handle{}, fmt.Errorf("run instances returned no instance")
	}

	id := awssdk.ToString(out.Instances[0].InstanceId)
	a.mu.Lock()
	a.launched[id] = true
	a.mu.Unlock()

	a.logger.WithResource(string(engine.KindCompute), id).Info("instance launched")
	return engine.Handle{
		Kind: engine.KindCompute,
		ID:   id,
		Attributes: map[string]string{
			"image_id":      spec.ImageID,
			"instance_type": spec.InstanceType,
		},
	}, nil
}

func (a *Adapter) describeInstance(ctx context.Context, id string) (engine.State, error) {
	out, err := a.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}})
	if err != nil {
		if hasCode(err, instanceNotFoundCodes...) {
			return a.missingInstance(id), nil
		}
		return "", fmt.Errorf("describe instance %s: %w", id, err)
	}

	for _, r := range out.Reservations {
		for _, inst := range r.Instances {
			if awssdk.ToString(inst.InstanceId) != id || inst.State == nil {
				continue
			}
			return instanceState(inst.State.Name), nil
		}
	}
	return a.missingInstance(id), nil
}

// missingInstance maps an unknown instance id to a state.
func (a *Adapter) missingInstance(id string) engine.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.launched[id] {
		return engine.StateProvisioning
	}
	return engine.StateTerminated
}

func instanceState(name ec2types.InstanceStateName) engine.State {
	switch name {
	case ec2types.InstanceStateNamePending:
		return engine.StateProvisioning
	case ec2types.InstanceStateNameRunning:
		return engine.StateReady
	case ec2types.InstanceStateNameShuttingDown:
		return engine.StateTerminating
	case ec2types.InstanceStateNameTerminated:
		return engine.StateTerminated
	default:
		// stopping and stopped instances will not serve the run.
		return engine.StateFailed
	}
}

func (a *Adapter) terminateInstance(ctx context.Context, id string) error {
	_, err := a.ec2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{id}})
	if err != nil && !hasCode(err, instanceNotFoundCodes...) {
		return fmt.Errorf("terminate instance %s: %w", id, err)
	}

	a.mu.Lock()
	delete(a.launched, id)
	a.mu.Unlock()

	a.logger.WithResource(string(engine.KindCompute), id).Info("instance termination requested")
	return nil
}

func toTags(m map[string]string) []ec2types.Tag {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tags := make([]ec2types.Tag, 0, len(keys))
	for _, k := range keys {
		tags = append(tags, ec2types.Tag{Key: awssdk.String(k), Value: awssdk.String(m[k])})
	}
	return tags
}
