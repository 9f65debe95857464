package rules

// Known waste scenarios (resource types).
const (
	TypeEBSVolumeUnattached   = "ebs_volume_unattached"
	TypeEBSVolumeIdle         = "ebs_volume_idle"
	TypeSnapshotOrphaned      = "snapshot_orphaned"
	TypeEC2InstanceStopped    = "ec2_instance_stopped"
	TypeEC2InstanceIdle       = "ec2_instance_idle"
	TypeElasticIPUnassociated = "elastic_ip_unassociated"
	TypeNATGatewayIdle        = "nat_gateway_idle"
	TypeLBNoTargets           = "lb_no_targets"
	TypeRDSInstanceIdle       = "rds_instance_idle"
	TypeS3BucketIdle          = "s3_bucket_idle"
)

// DefaultTweak adjusts a seeded default at startup. Used to apply config
// overrides before the store becomes immutable.
type DefaultTweak struct {
	Enabled        *bool
	Thresholds     map[string]float64
	RequiredLabels []string
	Description    string
}

// BuiltinDefaults returns the seeded default rule per resource type.
// Exactly one default exists per type; the returned map is a fresh copy.
func BuiltinDefaults() map[string]EffectiveRule {
	defaults := []EffectiveRule{
		{
			ResourceType: TypeEBSVolumeUnattached,
			Enabled:      true,
			Thresholds: map[string]float64{
				ThresholdMinAgeDays:     7,
				ThresholdConfidenceDays: 30,
			},
			Description: "EBS volume not attached to any instance",
		},
		{
			ResourceType: TypeEBSVolumeIdle,
			Enabled:      true,
			Thresholds: map[string]float64{
				ThresholdMinAgeDays:     14,
				ThresholdConfidenceDays: 30,
				ThresholdReadOpsPerDay:  1,
				ThresholdWriteOpsPerDay: 1,
			},
			Description: "EBS volume attached but showing no I/O",
		},
		{
			ResourceType: TypeSnapshotOrphaned,
			Enabled:      true,
			Thresholds: map[string]float64{
				ThresholdMinAgeDays:     30,
				ThresholdConfidenceDays: 90,
			},
			Description: "EBS snapshot whose source volume no longer exists",
		},
		{
			ResourceType: TypeEC2InstanceStopped,
			Enabled:      true,
			Thresholds: map[string]float64{
				ThresholdMinAgeDays:     7,
				ThresholdMinStoppedDays: 7,
				ThresholdConfidenceDays: 30,
			},
			Description: "EC2 instance stopped but still paying for storage",
		},
		{
			ResourceType: TypeEC2InstanceIdle,
			Enabled:      true,
			Thresholds: map[string]float64{
				ThresholdMinAgeDays:     14,
				ThresholdCPUPct:         5,
				ThresholdConfidenceDays: 30,
			},
			Description: "EC2 instance running with near-zero CPU",
		},
		{
			ResourceType: TypeElasticIPUnassociated,
			Enabled:      true,
			Thresholds: map[string]float64{
				// EC2 exposes no allocation time, so the age gate stays open.
				ThresholdMinAgeDays:     0,
				ThresholdConfidenceDays: 14,
			},
			Description: "Elastic IP allocated but not associated",
		},
		{
			ResourceType: TypeNATGatewayIdle,
			Enabled:      true,
			Thresholds: map[string]float64{
				ThresholdMinAgeDays:     7,
				ThresholdBytesMBPerDay:  1,
				ThresholdConfidenceDays: 30,
			},
			Description: "NAT gateway processing almost no traffic",
		},
		{
			ResourceType: TypeLBNoTargets,
			Enabled:      true,
			Thresholds: map[string]float64{
				ThresholdMinAgeDays:     7,
				ThresholdConfidenceDays: 30,
			},
			Description: "Load balancer with no healthy targets",
		},
		{
			ResourceType: TypeRDSInstanceIdle,
			Enabled:      true,
			Thresholds: map[string]float64{
				ThresholdMinAgeDays:        14,
				ThresholdCPUPct:            5,
				ThresholdConnectionsPerDay: 1,
				ThresholdConfidenceDays:    30,
			},
			Description: "RDS instance with no connections",
		},
		{
			ResourceType: TypeS3BucketIdle,
			Enabled:      true,
			Thresholds: map[string]float64{
				ThresholdMinAgeDays:     60,
				ThresholdConfidenceDays: 90,
			},
			Description: "S3 bucket with no recent access",
		},
	}

	out := make(map[string]EffectiveRule, len(defaults))
	for _, d := range defaults {
		out[d.ResourceType] = d
	}
	return out
}

// ApplyTweaks overlays startup config tweaks onto seeded defaults.
// Tweaks for unknown resource types register a new default rule, so
// deployments can add scenarios without a code change.
func ApplyTweaks(defaults map[string]EffectiveRule, tweaks map[string]DefaultTweak) map[string]EffectiveRule {
	for resourceType, tweak := range tweaks {
		def, ok := defaults[resourceType]
		if !ok {
			def = EffectiveRule{
				ResourceType: resourceType,
				Enabled:      true,
				Thresholds:   map[string]float64{},
			}
		}
		def = merge(def, Rule{
			ResourceType:   resourceType,
			Enabled:        tweak.Enabled,
			Thresholds:     tweak.Thresholds,
			RequiredLabels: tweak.RequiredLabels,
			Description:    tweak.Description,
		})
		defaults[resourceType] = def
	}
	return defaults
}
