package rules

// Family groups related resource types into one logical toggle for
// presentation and bulk edits. Code-defined; no independent storage.
type Family struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

var families = []Family{
	{
		ID:      "ebs_volumes",
		Name:    "EBS Volumes",
		Members: []string{TypeEBSVolumeUnattached, TypeEBSVolumeIdle},
	},
	{
		ID:      "snapshots",
		Name:    "EBS Snapshots",
		Members: []string{TypeSnapshotOrphaned},
	},
	{
		ID:      "ec2_instances",
		Name:    "EC2 Instances",
		Members: []string{TypeEC2InstanceStopped, TypeEC2InstanceIdle},
	},
	{
		ID:      "network",
		Name:    "Network",
		Members: []string{TypeElasticIPUnassociated, TypeNATGatewayIdle, TypeLBNoTargets},
	},
	{
		ID:      "databases",
		Name:    "Databases",
		Members: []string{TypeRDSInstanceIdle},
	},
	{
		ID:      "object_storage",
		Name:    "Object Storage",
		Members: []string{TypeS3BucketIdle},
	},
}

// Families returns all resource families in presentation order.
func Families() []Family {
	out := make([]Family, len(families))
	for i, f := range families {
		out[i] = f
		out[i].Members = append([]string(nil), f.Members...)
	}
	return out
}

// FamilyByID returns one family by its ID.
func FamilyByID(id string) (Family, bool) {
	for _, f := range families {
		if f.ID == id {
			f.Members = append([]string(nil), f.Members...)
			return f, true
		}
	}
	return Family{}, false
}
