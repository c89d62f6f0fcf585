package sources

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iot"
)

// ThingsAPI is the subset of *iot.Client used by ThingPager
type ThingsAPI interface {
	ListThings(ctx context.Context, params *iot.ListThingsInput, optFns ...func(*iot.Options)) (*iot.ListThingsOutput, error)
}

const thingsPageSize = 250

// ThingPager pages through the registered things of one thing type
type ThingPager struct {
	client    ThingsAPI
	thingType string
}

// NewThingPager creates a pager over things of thingType
func NewThingPager(client ThingsAPI, thingType string) *ThingPager {
	return &ThingPager{client: client, thingType: thingType}
}

// FetchPage implements PageFetcher
func (p *ThingPager) FetchPage(ctx context.Context, token string) (Page, error) {
	input := &iot.ListThingsInput{
		ThingTypeName: aws.String(p.thingType),
		MaxResults:    aws.Int32(thingsPageSize),
	}
	if token != "" {
		input.NextToken = aws.String(token)
	}

	out, err := p.client.ListThings(ctx, input)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Count:     int64(len(out.Things)),
		NextToken: aws.ToString(out.NextToken),
	}, nil
}
