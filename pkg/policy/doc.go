// Package policy gates cloudcycle runs with Open Policy Agent.
//
// Before any resource is provisioned the orchestrator hands the run spec to
// Engine.Check. Every enabled policy is a Rego module whose package defines a
// `deny` set; members are either strings or objects with "message",
// "resource" and optional "severity" keys. Violations of severity error or
// critical deny the run with an *engine.PolicyDeniedError. Lower severities
// come back as warnings and are published as policy.violation events.
//
// # Built-in Policies
//
//   - bucket-naming: bucket names follow object-storage naming rules
//   - queue-naming: queue names use only alphanumerics, hyphens, underscores
//   - image-id: compute images look like ami-xxxxxxxx
//   - required-tags: compute instances carry a Name tag
//   - instance-type: warns outside the free tier
//
// # Custom Policies
//
// Extra .rego or .json policies are loaded from a directory:
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"./policies"}); err != nil {
//	    return err
//	}
//
// A .rego file defaults to severity warning; a "# severity: error" comment
// raises it. Loader.Watch reloads policies when files change.
//
// The input document is the run spec in its JSON form plus a context object:
//
//	{
//	  "region": "us-east-1",
//	  "compute": {"image_id": "...", "instance_type": "t2.micro", "tags": {...}},
//	  "storage": {"name": "...", "region": "..."},
//	  "queue": {"name": "...", "attributes": {...}},
//	  "context": {"environment": "...", "provider": "aws"}
//	}
package policy
