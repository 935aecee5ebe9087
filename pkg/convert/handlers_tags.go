package convert

import (
	"context"
	"fmt"
)

// stepTagResources tags the instance, every ENI, and every volume with
// the job-id tag (spec.md §4.6). Re-running CreateTags with the same
// key/value is a no-op on the provider side, so no "already tagged" check
// is needed for idempotence.
func stepTagResources(ctx context.Context, e *Executor, r *Record) Outcome {
	resourceIDs := []string{r.InstanceID}
	for _, ni := range r.OriginalInstanceState.NetworkInterfaceIDs {
		resourceIDs = append(resourceIDs, ni)
	}

	volumes, err := e.Adapter.DescribeVolumes(ctx, r.InstanceID)
	if err != nil {
		return Fatal(fmt.Errorf("tag_resources: describe volumes: %w", err))
	}
	for _, v := range volumes {
		resourceIDs = append(resourceIDs, v.VolumeID)
	}

	if err := e.Adapter.TagResources(ctx, resourceIDs, map[string]string{jobTagKey: r.InstanceID}); err != nil {
		return Fatal(fmt.Errorf("tag_resources: %w", err))
	}
	return Success(fmt.Sprintf("tagged %d resources", len(resourceIDs)))
}

// stepUntagResources removes the job-id tag from every resource still
// standing after a successful conversion: the new instance, its ENIs, its
// volumes, and the backup AMI if it was kept. spec.md invariant 5.
func stepUntagResources(ctx context.Context, e *Executor, r *Record) Outcome {
	resourceIDs := []string{r.NewInstanceID}

	finalSnap, err := e.Adapter.DescribeInstance(ctx, r.NewInstanceID)
	if err != nil {
		return Fatal(fmt.Errorf("untag_resources: %w", err))
	}
	r.FinalInstanceState = finalSnap
	resourceIDs = append(resourceIDs, finalSnap.NetworkInterfaceIDs...)

	volumes, err := e.Adapter.DescribeVolumes(ctx, r.NewInstanceID)
	if err != nil {
		return Fatal(fmt.Errorf("untag_resources: describe volumes: %w", err))
	}
	for _, v := range volumes {
		resourceIDs = append(resourceIDs, v.VolumeID)
	}

	if r.AMIID != "" {
		resourceIDs = append(resourceIDs, r.AMIID)
	}

	if err := e.Adapter.UntagResources(ctx, resourceIDs, []string{jobTagKey}); err != nil {
		return Fatal(fmt.Errorf("untag_resources: %w", err))
	}
	return Success(fmt.Sprintf("untagged %d resources", len(resourceIDs)))
}
