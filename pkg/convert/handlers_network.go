package convert

import (
	"context"
	"fmt"
)

// stepPrepareNetworkInterfaces sets DeleteOnTermination=false on every
// attached ENI so the subsequent terminate step preserves them (and
// therefore their private IPs). Idempotent: setting the same value twice
// is a no-op on the provider side.
func stepPrepareNetworkInterfaces(ctx context.Context, e *Executor, r *Record) Outcome {
	changed := 0
	for _, ni := range r.OriginalNetworkInterfaces {
		if !ni.DeleteOnTermination {
			continue
		}
		if err := e.Adapter.ModifyNetworkInterfaceDeleteOnTermination(ctx, ni.NetworkInterfaceID, ni.AttachmentID, false); err != nil {
			return Fatal(fmt.Errorf("prepare_network_interfaces: %s: %w", ni.NetworkInterfaceID, err))
		}
		changed++
	}
	return Success(fmt.Sprintf("prepared %d network interfaces", changed))
}

// stepConfigureNetworkInterfaces restores each ENI's original
// DeleteOnTermination value on the replacement instance's attachments.
func stepConfigureNetworkInterfaces(ctx context.Context, e *Executor, r *Record) Outcome {
	restored := 0
	newENIs, err := e.Adapter.DescribeNetworkInterfaces(ctx, r.NewInstanceID)
	if err != nil {
		return Fatal(fmt.Errorf("configure_network_interfaces: %w", err))
	}
	originalByID := make(map[string]bool, len(r.OriginalNetworkInterfaces))
	for _, ni := range r.OriginalNetworkInterfaces {
		originalByID[ni.NetworkInterfaceID] = ni.DeleteOnTermination
	}
	for _, ni := range newENIs {
		wantDOT, ok := originalByID[ni.NetworkInterfaceID]
		if !ok || ni.DeleteOnTermination == wantDOT {
			continue
		}
		if err := e.Adapter.ModifyNetworkInterfaceDeleteOnTermination(ctx, ni.NetworkInterfaceID, ni.AttachmentID, wantDOT); err != nil {
			return Fatal(fmt.Errorf("configure_network_interfaces: %s: %w", ni.NetworkInterfaceID, err))
		}
		restored++
	}
	return Success(fmt.Sprintf("restored %d network interfaces", restored))
}

// stepManageElasticIP re-associates each originally-bound elastic IP whose
// private IP is still present on one of the preserved ENIs.
func stepManageElasticIP(ctx context.Context, e *Executor, r *Record) Outcome {
	if len(r.OriginalAddresses) == 0 {
		return Skipped("no elastic ips to reassociate")
	}

	current, err := e.Adapter.DescribeAddresses(ctx)
	if err != nil {
		return Fatal(fmt.Errorf("manage_elastic_ip: %w", err))
	}
	currentByAllocation := make(map[string]bool, len(current))
	for _, a := range current {
		if a.AssociationID != "" {
			currentByAllocation[a.AllocationID] = true
		}
	}

	reassociated := 0
	for _, orig := range r.OriginalAddresses {
		if currentByAllocation[orig.AllocationID] {
			continue
		}
		if err := e.Adapter.AssociateAddress(ctx, orig.AllocationID, orig.NetworkInterfaceID, orig.PrivateIPAddress); err != nil {
			return Fatal(fmt.Errorf("manage_elastic_ip: %s: %w", orig.AllocationID, err))
		}
		reassociated++
	}
	return Success(fmt.Sprintf("reassociated %d elastic ips", reassociated))
}
