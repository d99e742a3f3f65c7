package aws

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/picklr-io/shipyard/internal/cloud"
)

type dns struct {
	client *route53.Client
}

// ListHostedZonesByName lists the zones that could contain name. Zones are
// ordered by reversed labels, so listing starts at the registrable domain and
// stops once names leave it.
func (d *dns) ListHostedZonesByName(ctx context.Context, name string) (*cloud.ZoneListing, error) {
	apex := apexOf(name)
	listing := &cloud.ZoneListing{}
	in := &route53.ListHostedZonesByNameInput{DNSName: aws.String(apex)}

	for pages := 0; ; pages++ {
		if pages == maxListPages {
			listing.Truncated = true
			return listing, nil
		}
		out, err := d.client.ListHostedZonesByName(ctx, in)
		if err != nil {
			return nil, wrapErr("ListHostedZonesByName", err)
		}
		for _, z := range out.HostedZones {
			zoneName := strings.TrimSuffix(aws.ToString(z.Name), ".")
			if zoneName != apex && !strings.HasSuffix(zoneName, "."+apex) {
				return listing, nil
			}
			zone := cloud.HostedZone{
				ID:   strings.TrimPrefix(aws.ToString(z.Id), "/hostedzone/"),
				Name: zoneName,
			}
			if z.Config != nil {
				zone.Private = z.Config.PrivateZone
			}
			listing.Zones = append(listing.Zones, zone)
		}
		if !out.IsTruncated {
			return listing, nil
		}
		in.DNSName = out.NextDNSName
		in.HostedZoneId = out.NextHostedZoneId
	}
}

func apexOf(name string) string {
	labels := strings.Split(strings.TrimSuffix(name, "."), ".")
	if len(labels) <= 2 {
		return strings.Join(labels, ".")
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

func (d *dns) FindRecord(ctx context.Context, zoneID, name, recordType string) (*cloud.RecordState, error) {
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	out, err := d.client.ListResourceRecordSets(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(zoneID),
		StartRecordName: aws.String(name),
		StartRecordType: types.RRType(recordType),
		MaxItems:        aws.Int32(1),
	})
	if err != nil {
		return nil, wrapErr("ListResourceRecordSets", err)
	}
	for _, rs := range out.ResourceRecordSets {
		if unescapeRecordName(aws.ToString(rs.Name)) != name || string(rs.Type) != recordType {
			continue
		}
		st := &cloud.RecordState{
			Name: name,
			Type: recordType,
			TTL:  aws.ToInt64(rs.TTL),
		}
		for _, v := range rs.ResourceRecords {
			st.Values = append(st.Values, aws.ToString(v.Value))
		}
		if rs.AliasTarget != nil {
			st.Alias = &cloud.AliasTarget{
				DNSName:      strings.TrimSuffix(aws.ToString(rs.AliasTarget.DNSName), "."),
				HostedZoneID: aws.ToString(rs.AliasTarget.HostedZoneId),
			}
		}
		return st, nil
	}
	return nil, nil
}

// unescapeRecordName normalizes a returned record name. Route 53 escapes a
// leading wildcard as \052.
func unescapeRecordName(name string) string {
	name = strings.ReplaceAll(name, `\052`, "*")
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

func (d *dns) UpsertRecord(ctx context.Context, zoneID string, record cloud.RecordState) (string, error) {
	rs := &types.ResourceRecordSet{
		Name: aws.String(record.Name),
		Type: types.RRType(record.Type),
	}
	if record.Alias != nil {
		rs.AliasTarget = &types.AliasTarget{
			DNSName:              aws.String(record.Alias.DNSName),
			HostedZoneId:         aws.String(record.Alias.HostedZoneID),
			EvaluateTargetHealth: false,
		}
	} else {
		rs.TTL = aws.Int64(record.TTL)
		for _, v := range record.Values {
			rs.ResourceRecords = append(rs.ResourceRecords, types.ResourceRecord{Value: aws.String(v)})
		}
	}

	out, err := d.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{{Action: types.ChangeActionUpsert, ResourceRecordSet: rs}},
		},
	})
	if err != nil {
		return "", wrapErr("ChangeResourceRecordSets", err)
	}
	return strings.TrimPrefix(aws.ToString(out.ChangeInfo.Id), "/change/"), nil
}

func (d *dns) GetChangeStatus(ctx context.Context, changeID string) (string, error) {
	out, err := d.client.GetChange(ctx, &route53.GetChangeInput{Id: aws.String(changeID)})
	if err != nil {
		return "", wrapErr("GetChange", err)
	}
	return string(out.ChangeInfo.Status), nil
}
