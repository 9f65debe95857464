// Package aws implements the provider adapter on AWS SDK v2. Each waste
// scenario has its own lister; CloudWatch supplies the utilization metrics
// the idle scenarios need, and the Price List API answers live price
// lookups.
package aws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/yairfalse/scrimp/providers"
	"github.com/yairfalse/scrimp/rules"
	"github.com/yairfalse/scrimp/types"
)

func init() {
	providers.Register("aws", func(ctx context.Context, cfg providers.Config) (providers.Adapter, error) {
		return NewAdapter(ctx, cfg.Region)
	})
}

// metricWindowDays is the lookback used for idle detection.
const metricWindowDays = 7

type regionClients struct {
	ec2 *ec2.Client
	rds *rds.Client
	s3  *s3.Client
	elb *elasticloadbalancingv2.Client
	cw  *cloudwatch.Client
}

type lister func(ctx context.Context, clients *regionClients, region string) ([]types.Observation, error)

// Adapter lists waste-candidate observations from AWS. Clients are built
// lazily per region from one base config; the pricing client is pinned to
// us-east-1, where the Price List API lives.
type Adapter struct {
	cfg     aws.Config
	pricing *pricing.Client
	listers map[string]lister

	mu      sync.Mutex
	clients map[string]*regionClients
}

// NewAdapter loads the default AWS config chain and wires the scenario
// listers.
func NewAdapter(ctx context.Context, region string) (*Adapter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newAdapterWithConfig(cfg), nil
}

func newAdapterWithConfig(cfg aws.Config) *Adapter {
	pricingCfg := cfg.Copy()
	pricingCfg.Region = "us-east-1"

	a := &Adapter{
		cfg:     cfg,
		pricing: pricing.NewFromConfig(pricingCfg),
		clients: make(map[string]*regionClients),
	}
	a.listers = map[string]lister{
		rules.TypeEBSVolumeUnattached:   a.listUnattachedVolumes,
		rules.TypeEBSVolumeIdle:         a.listIdleVolumes,
		rules.TypeSnapshotOrphaned:      a.listOrphanedSnapshots,
		rules.TypeEC2InstanceStopped:    a.listStoppedInstances,
		rules.TypeEC2InstanceIdle:       a.listIdleInstances,
		rules.TypeElasticIPUnassociated: a.listUnassociatedIPs,
		rules.TypeNATGatewayIdle:        a.listIdleNATGateways,
		rules.TypeLBNoTargets:           a.listLoadBalancersWithoutTargets,
		rules.TypeRDSInstanceIdle:       a.listIdleDBInstances,
		rules.TypeS3BucketIdle:          a.listIdleBuckets,
	}
	return a
}

// Name returns the provider identifier.
func (a *Adapter) Name() string { return "aws" }

// ListResources lists one scenario in one region.
func (a *Adapter) ListResources(ctx context.Context, resourceType, region string) ([]types.Observation, error) {
	list, ok := a.listers[resourceType]
	if !ok {
		return nil, fmt.Errorf("unsupported resource type: %s", resourceType)
	}
	return list(ctx, a.regionClients(region), region)
}

func (a *Adapter) regionClients(region string) *regionClients {
	a.mu.Lock()
	defer a.mu.Unlock()

	if clients, ok := a.clients[region]; ok {
		return clients
	}

	cfg := a.cfg.Copy()
	cfg.Region = region
	clients := &regionClients{
		ec2: ec2.NewFromConfig(cfg),
		rds: rds.NewFromConfig(cfg),
		s3:  s3.NewFromConfig(cfg),
		elb: elasticloadbalancingv2.NewFromConfig(cfg),
		cw:  cloudwatch.NewFromConfig(cfg),
	}
	a.clients[region] = clients
	return clients
}

func ageDays(created *time.Time) float64 {
	if created == nil {
		return 0
	}
	return time.Since(*created).Hours() / 24
}

var _ providers.Adapter = (*Adapter)(nil)
var _ providers.LivePriceSource = (*Adapter)(nil)
