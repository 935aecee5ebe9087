// Package cloudtest provides an in-memory implementation of cloud.Adapter
// for unit tests, the same role test/cloudtest's moto-backed harness plays
// for pkg/provider/s3 but without a server process: EC2 has no equivalent
// bundled simulator in this toolchain's reach, so the fake models just
// enough AWS-observable state (instance fields, volumes, ENIs, images,
// tags, target health, alarms) for pkg/convert's handlers to drive through
// a full conversion against it.
package cloudtest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/3leaps/ec2spotconverter/pkg/cloud"
)

// Fake is a mutable, goroutine-safe in-memory cloud.Adapter. Zero value is
// not usable; construct with New.
type Fake struct {
	mu sync.Mutex

	SelfInstanceID string // empty means ResolveSelfInstanceID reports "not running on EC2"

	instances   map[string]*cloud.InstanceSnapshot
	terminated  map[string]bool
	termProtect map[string]bool
	spotReqs    map[string]*cloud.SpotRequestDetail
	volumes     map[string]*cloud.VolumeDetail
	volumeOwner map[string]string // volumeID -> instanceID currently attached, "" if detached
	enis        map[string]*cloud.NetworkInterfaceDetail
	eniOwner    map[string]string // eniID -> instanceID
	addresses   []cloud.AddressBinding
	images      map[string]*cloud.ImageDetail
	imagesByName map[string]string
	snapshots   map[string]bool
	kmsKeys     map[string]bool // keyID -> enabled
	elasticGPUs map[string][]cloud.ElasticGPUSpec
	tags        map[string]map[string]string // resourceID -> tags
	targetGroups map[string]cloud.TargetGroupInfo
	targetHealth map[string]string // tgARN+"/"+instanceID -> state
	alarms      map[string]cloud.AlarmInfo

	nextImageSeq int
	nextInstSeq  int

	// RunInstanceErr, when set, is returned by the next RunInstance call
	// and then cleared, letting tests simulate a transient launch failure.
	RunInstanceErr error
}

// New returns an empty Fake ready for test setup via its Seed* helpers.
func New() *Fake {
	return &Fake{
		instances:    map[string]*cloud.InstanceSnapshot{},
		terminated:   map[string]bool{},
		termProtect:  map[string]bool{},
		spotReqs:     map[string]*cloud.SpotRequestDetail{},
		volumes:      map[string]*cloud.VolumeDetail{},
		volumeOwner:  map[string]string{},
		enis:         map[string]*cloud.NetworkInterfaceDetail{},
		eniOwner:     map[string]string{},
		images:       map[string]*cloud.ImageDetail{},
		imagesByName: map[string]string{},
		snapshots:    map[string]bool{},
		kmsKeys:      map[string]bool{},
		elasticGPUs:  map[string][]cloud.ElasticGPUSpec{},
		tags:         map[string]map[string]string{},
		targetGroups: map[string]cloud.TargetGroupInfo{},
		targetHealth: map[string]string{},
		alarms:       map[string]cloud.AlarmInfo{},
	}
}

// SeedInstance registers snap as an existing instance, along with any
// volumes/enis it references via its VolumeIDs/NetworkInterfaceIDs fields
// if the caller has separately added them with SeedVolume/SeedENI.
func (f *Fake) SeedInstance(snap cloud.InstanceSnapshot) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := snap
	f.instances[snap.InstanceID] = &cp
	return f
}

func (f *Fake) SeedVolume(instanceID string, v cloud.VolumeDetail) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := v
	f.volumes[v.VolumeID] = &cp
	f.volumeOwner[v.VolumeID] = instanceID
	return f
}

func (f *Fake) SeedENI(instanceID string, ni cloud.NetworkInterfaceDetail) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := ni
	f.enis[ni.NetworkInterfaceID] = &cp
	f.eniOwner[ni.NetworkInterfaceID] = instanceID
	return f
}

func (f *Fake) SeedKMSKey(keyID string, enabled bool) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kmsKeys[keyID] = enabled
	return f
}

func (f *Fake) SeedTargetGroup(tg cloud.TargetGroupInfo) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targetGroups[tg.ARN] = tg
	return f
}

func (f *Fake) SeedTargetHealth(tgARN, instanceID, state string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targetHealth[tgARN+"/"+instanceID] = state
	return f
}

func (f *Fake) SeedAlarm(al cloud.AlarmInfo) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alarms[al.Name] = al
	return f
}

func (f *Fake) SetTerminationProtection(instanceID string, on bool) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.termProtect[instanceID] = on
	return f
}

func (f *Fake) SetSpotRequest(instanceID string, detail cloud.SpotRequestDetail) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spotReqs[detail.SpotRequestID] = &detail
	if inst, ok := f.instances[instanceID]; ok {
		inst.SpotInstanceRequestID = detail.SpotRequestID
	}
	return f
}

// SetInstanceState forces instanceID's lifecycle state, letting a test
// simulate a launch or termination reaching a state RunInstance/
// TerminateInstance don't themselves produce (e.g. a replacement instance
// whose launch failed and landed in "terminated").
func (f *Fake) SetInstanceState(instanceID, state string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inst, ok := f.instances[instanceID]; ok {
		inst.State = state
	}
	return f
}

// SetImageState forces imageID's state, letting a test simulate an AMI
// that reaches "failed" instead of "available".
func (f *Fake) SetImageState(imageID, state string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	if img, ok := f.images[imageID]; ok {
		img.State = state
	}
	return f
}

// InstanceState returns the current lifecycle state of instanceID, or ""
// if unknown, for assertions in tests.
func (f *Fake) InstanceState(instanceID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inst, ok := f.instances[instanceID]; ok {
		return inst.State
	}
	return ""
}

func (f *Fake) Tags(resourceID string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for k, v := range f.tags[resourceID] {
		out[k] = v
	}
	return out
}

// --- cloud.Adapter ---

func (f *Fake) ResolveSelfInstanceID(ctx context.Context) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SelfInstanceID == "" {
		return "", false
	}
	return f.SelfInstanceID, true
}

func (f *Fake) DescribeTerminationProtection(ctx context.Context, instanceID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.instances[instanceID]; !ok {
		return false, notFound("DescribeTerminationProtection", instanceID)
	}
	return f.termProtect[instanceID], nil
}

func (f *Fake) DescribeKMSKey(ctx context.Context, keyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	enabled, ok := f.kmsKeys[keyID]
	if !ok {
		return notFound("DescribeKMSKey", keyID)
	}
	if !enabled {
		return &cloud.AdapterError{Op: "DescribeKMSKey", ResourceID: keyID, Err: fmt.Errorf("key disabled")}
	}
	return nil
}

func (f *Fake) DescribeInstance(ctx context.Context, instanceID string) (*cloud.InstanceSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.instances[instanceID]
	if !ok {
		return nil, notFound("DescribeInstance", instanceID)
	}
	cp := *inst
	return &cp, nil
}

func (f *Fake) DescribeInstanceState(ctx context.Context, instanceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.instances[instanceID]
	if !ok {
		return "", notFound("DescribeInstanceState", instanceID)
	}
	return inst.State, nil
}

func (f *Fake) StopInstance(ctx context.Context, instanceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.instances[instanceID]
	if !ok {
		return notFound("StopInstance", instanceID)
	}
	if f.termProtect[instanceID] {
		return &cloud.AdapterError{Op: "StopInstance", ResourceID: instanceID, Err: cloud.ErrInvalidState}
	}
	inst.State = "stopped"
	return nil
}

func (f *Fake) TerminateInstance(ctx context.Context, instanceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.instances[instanceID]
	if !ok {
		return notFound("TerminateInstance", instanceID)
	}
	if f.termProtect[instanceID] {
		return &cloud.AdapterError{Op: "TerminateInstance", ResourceID: instanceID, Err: cloud.ErrInvalidState}
	}
	inst.State = "terminated"
	f.terminated[instanceID] = true
	for volID, owner := range f.volumeOwner {
		if owner == instanceID {
			f.volumeOwner[volID] = ""
		}
	}
	for eniID, owner := range f.eniOwner {
		if owner == instanceID {
			f.eniOwner[eniID] = ""
		}
	}
	return nil
}

func (f *Fake) RebootInstance(ctx context.Context, instanceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.instances[instanceID]
	if !ok {
		return notFound("RebootInstance", instanceID)
	}
	inst.State = "running"
	return nil
}

func (f *Fake) RunInstance(ctx context.Context, spec cloud.LaunchSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RunInstanceErr != nil {
		err := f.RunInstanceErr
		f.RunInstanceErr = nil
		return "", err
	}
	f.nextInstSeq++
	id := fmt.Sprintf("i-fake%06d", f.nextInstSeq)
	snap := &cloud.InstanceSnapshot{
		InstanceID:    id,
		ImageID:       spec.ImageID,
		InstanceType:  spec.InstanceType,
		State:         "pending",
		KeyName:       spec.KeyName,
		Monitoring:    spec.Monitoring,
		EBSOptimized:  spec.EBSOptimized,
		CPUOptions:    spec.CPUOptions,
		MetadataOptions: spec.MetadataOptions,
		UserData:      spec.UserData,
		Tags:          spec.Tags,
	}
	if spec.Placement != nil {
		snap.AvailabilityZone = spec.Placement.AvailabilityZone
		snap.PlacementGroupName = spec.Placement.GroupName
		snap.Tenancy = spec.Placement.Tenancy
	}
	for _, ni := range spec.NetworkInterfaces {
		snap.NetworkInterfaceIDs = append(snap.NetworkInterfaceIDs, ni.NetworkInterfaceID)
		f.eniOwner[ni.NetworkInterfaceID] = id
	}
	if spec.MarketType == "spot" {
		reqID := fmt.Sprintf("sir-fake%06d", f.nextInstSeq)
		f.spotReqs[reqID] = &cloud.SpotRequestDetail{
			SpotRequestID: reqID,
			State:         "active",
			Type:          spec.SpotInstanceType,
			MaxPrice:      spec.MaxSpotPrice,
			InterruptionBehavior: spec.InstanceInterruptionBehavior,
		}
		snap.SpotInstanceRequestID = reqID
	}
	f.instances[id] = snap
	snap.State = "running"
	return id, nil
}

func (f *Fake) DescribeSpotRequest(ctx context.Context, spotRequestID string) (*cloud.SpotRequestDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.spotReqs[spotRequestID]
	if !ok {
		return nil, notFound("DescribeSpotRequest", spotRequestID)
	}
	cp := *req
	return &cp, nil
}

func (f *Fake) CancelSpotRequest(ctx context.Context, spotRequestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.spotReqs[spotRequestID]
	if !ok {
		return notFound("CancelSpotRequest", spotRequestID)
	}
	req.State = "cancelled"
	return nil
}

func (f *Fake) DescribeVolumes(ctx context.Context, instanceID string) ([]cloud.VolumeDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []cloud.VolumeDetail
	for id, owner := range f.volumeOwner {
		if owner == instanceID {
			out = append(out, *f.volumes[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VolumeID < out[j].VolumeID })
	return out, nil
}

func (f *Fake) DetachVolume(ctx context.Context, volumeID, instanceID, deviceName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.volumes[volumeID]; !ok {
		return notFound("DetachVolume", volumeID)
	}
	if f.volumeOwner[volumeID] == instanceID {
		f.volumeOwner[volumeID] = ""
	}
	return nil
}

func (f *Fake) AttachVolume(ctx context.Context, volumeID, instanceID, deviceName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[volumeID]
	if !ok {
		return notFound("AttachVolume", volumeID)
	}
	f.volumeOwner[volumeID] = instanceID
	v.DeviceName = deviceName
	return nil
}

func (f *Fake) DeleteVolume(ctx context.Context, volumeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.volumes[volumeID]; !ok {
		return notFound("DeleteVolume", volumeID)
	}
	delete(f.volumes, volumeID)
	delete(f.volumeOwner, volumeID)
	return nil
}

func (f *Fake) VolumeAttachedToInstance(ctx context.Context, volumeID, instanceID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.volumes[volumeID]; !ok {
		return false, nil
	}
	return f.volumeOwner[volumeID] == instanceID, nil
}

func (f *Fake) DescribeNetworkInterfaces(ctx context.Context, instanceID string) ([]cloud.NetworkInterfaceDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []cloud.NetworkInterfaceDetail
	for id, owner := range f.eniOwner {
		if owner == instanceID {
			out = append(out, *f.enis[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceIndex < out[j].DeviceIndex })
	return out, nil
}

func (f *Fake) DescribeNetworkInterfaceState(ctx context.Context, eniID string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.enis[eniID]; !ok {
		return "", "", notFound("DescribeNetworkInterfaceState", eniID)
	}
	owner := f.eniOwner[eniID]
	if owner == "" {
		return "available", "", nil
	}
	return "in-use", owner, nil
}

func (f *Fake) ModifyNetworkInterfaceDeleteOnTermination(ctx context.Context, eniID, attachmentID string, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ni, ok := f.enis[eniID]
	if !ok {
		return notFound("ModifyNetworkInterfaceDeleteOnTermination", eniID)
	}
	ni.DeleteOnTermination = value
	return nil
}

func (f *Fake) DescribeAddresses(ctx context.Context) ([]cloud.AddressBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]cloud.AddressBinding, len(f.addresses))
	copy(out, f.addresses)
	return out, nil
}

func (f *Fake) AssociateAddress(ctx context.Context, allocationID, eniID, privateIP string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.addresses {
		if f.addresses[i].AllocationID == allocationID {
			f.addresses[i].NetworkInterfaceID = eniID
			f.addresses[i].PrivateIPAddress = privateIP
			return nil
		}
	}
	return notFound("AssociateAddress", allocationID)
}

func (f *Fake) CreateImageNoReboot(ctx context.Context, instanceID, name string, blockDevices []cloud.BlockDeviceMapping) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.instances[instanceID]; !ok {
		return "", notFound("CreateImageNoReboot", instanceID)
	}
	if existing, ok := f.imagesByName[name]; ok {
		return existing, nil
	}
	f.nextImageSeq++
	id := "ami-fake" + strconv.Itoa(f.nextImageSeq)
	var snaps []string
	for _, bd := range blockDevices {
		snapID := "snap-fake" + strconv.Itoa(f.nextImageSeq) + "-" + bd.DeviceName
		f.snapshots[snapID] = true
		snaps = append(snaps, snapID)
	}
	f.images[id] = &cloud.ImageDetail{ImageID: id, State: "available", SnapshotIDs: snaps}
	f.imagesByName[name] = id
	return id, nil
}

func (f *Fake) FindImageByName(ctx context.Context, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.imagesByName[name]
	return id, ok, nil
}

func (f *Fake) DescribeImage(ctx context.Context, imageID string) (*cloud.ImageDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[imageID]
	if !ok {
		return nil, notFound("DescribeImage", imageID)
	}
	cp := *img
	return &cp, nil
}

func (f *Fake) DeregisterImage(ctx context.Context, imageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.images[imageID]; !ok {
		return notFound("DeregisterImage", imageID)
	}
	delete(f.images, imageID)
	return nil
}

func (f *Fake) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.snapshots[snapshotID] {
		return notFound("DeleteSnapshot", snapshotID)
	}
	delete(f.snapshots, snapshotID)
	return nil
}

func (f *Fake) DescribeElasticGPUs(ctx context.Context, instanceID string) ([]cloud.ElasticGPUSpec, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.elasticGPUs[instanceID], nil
}

func (f *Fake) DescribeElasticInferenceAccelerators(ctx context.Context, instanceID string) ([]cloud.ElasticInferenceSpec, error) {
	return nil, nil
}

func (f *Fake) TagResources(ctx context.Context, resourceIDs []string, tags map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range resourceIDs {
		if f.tags[id] == nil {
			f.tags[id] = map[string]string{}
		}
		for k, v := range tags {
			f.tags[id][k] = v
		}
	}
	return nil
}

func (f *Fake) UntagResources(ctx context.Context, resourceIDs []string, tagKeys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range resourceIDs {
		for _, k := range tagKeys {
			delete(f.tags[id], k)
		}
	}
	return nil
}

func (f *Fake) ResolveTargetGroups(ctx context.Context, arns []string) ([]cloud.TargetGroupInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []cloud.TargetGroupInfo
	for _, arn := range arns {
		tg, ok := f.targetGroups[arn]
		if !ok {
			return nil, notFound("ResolveTargetGroups", arn)
		}
		out = append(out, tg)
	}
	return out, nil
}

// DescribeTargetGroupsForInstance scans every seeded target group's health
// entries for instanceID, mirroring the production adapter's list-then-
// filter shape without needing a real elbv2 account to list against.
func (f *Fake) DescribeTargetGroupsForInstance(ctx context.Context, instanceID string) ([]cloud.TargetGroupInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []cloud.TargetGroupInfo
	for arn, tg := range f.targetGroups {
		state, ok := f.targetHealth[arn+"/"+instanceID]
		if ok && state != "unused" {
			out = append(out, tg)
		}
	}
	return out, nil
}

func (f *Fake) DescribeTargetHealth(ctx context.Context, tgARN, instanceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.targetHealth[tgARN+"/"+instanceID]
	if !ok {
		return "unused", nil
	}
	return state, nil
}

func (f *Fake) RegisterTarget(ctx context.Context, tgARN, instanceID string, port int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targetHealth[tgARN+"/"+instanceID] = "initial"
	return nil
}

func (f *Fake) DeregisterTarget(ctx context.Context, tgARN, instanceID string, port int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targetHealth[tgARN+"/"+instanceID] = "draining"
	return nil
}

func (f *Fake) DescribeAlarms(ctx context.Context, prefixes []string) ([]cloud.AlarmInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []cloud.AlarmInfo
	for _, al := range f.alarms {
		if len(prefixes) == 0 {
			out = append(out, al)
			continue
		}
		for _, p := range prefixes {
			if len(al.Name) >= len(p) && al.Name[:len(p)] == p {
				out = append(out, al)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *Fake) PutMetricAlarm(ctx context.Context, alarm cloud.AlarmInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alarms[alarm.Name] = alarm
	return nil
}

func notFound(op, resourceID string) error {
	return &cloud.AdapterError{Op: op, ResourceID: resourceID, Err: cloud.ErrNotFound}
}

var _ cloud.Adapter = (*Fake)(nil)
