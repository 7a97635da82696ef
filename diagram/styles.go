package diagram

import (
	"fmt"
	"strings"
)

// ShapeType names the kind of element to draw, e.g. "ec2" or "s3".
type ShapeType string

const (
	DefaultStyle = "rounded=1;whiteSpace=wrap;html=1;"
	EdgeStyle    = "endArrow=classic;strokeWidth=2;strokeColor=#333333;"

	// Icon size used for AWS resource shapes.
	DefaultWidth  = 60
	DefaultHeight = 60
)

const resourceIconStyle = "shape=mxgraph.aws4.resourceIcon;resIcon=mxgraph.aws4.%s;fontColor=#232F3E;fillColor=%s;strokeColor=#ffffff;verticalLabelPosition=bottom;verticalAlign=top;align=center;html=1;aspect=fixed;"

func resourceIcon(icon, fill string) string {
	return fmt.Sprintf(resourceIconStyle, icon, fill)
}

// shapeStyles maps normalized shape types to mxgraph styles.
var shapeStyles = map[ShapeType]string{
	"user":           "shape=mxgraph.aws4.user;verticalLabelPosition=bottom;align=center;verticalAlign=top;html=1;fontColor=#232F3E;fillColor=#D2D3D3;strokeColor=none;aspect=fixed;",
	"ec2":            resourceIcon("ec2", "#ED7100"),
	"rds":            resourceIcon("rds", "#3333FF"),
	"s3":             resourceIcon("s3", "#009900"),
	"lambda":         resourceIcon("lambda", "#ED7100"),
	"api_gateway":    resourceIcon("api_gateway", "#8C4FFF"),
	"glue":           resourceIcon("glue", "#8C4FFF"),
	"sns":            resourceIcon("sns", "#CC2264"),
	"sqs":            resourceIcon("sqs", "#CC2264"),
	"cloudwatch":     resourceIcon("cloudwatch", "#CC2264"),
	"dynamodb":       resourceIcon("dynamodb", "#3333FF"),
	"step_functions": resourceIcon("step_functions", "#CC2264"),
	"bedrock":        resourceIcon("bedrock", "#01A88D"),
	"vpc":            resourceIcon("vpc", "#8C4FFF"),
	"route_53":       resourceIcon("route_53", "#8C4FFF"),
	"cognito":        resourceIcon("cognito", "#DD344C"),
	"ecs":            resourceIcon("ecs", "#ED7100"),
	"eks":            resourceIcon("eks", "#ED7100"),
	"kms":            resourceIcon("kms", "#DD344C"),
	"kinesis":        resourceIcon("kinesis", "#8C4FFF"),
	"redshift":       resourceIcon("redshift", "#3333FF"),
}

// normalize turns "API Gateway", "api-gateway" and "Route53"-like inputs into
// table keys.
func (t ShapeType) normalize() ShapeType {
	s := strings.ToLower(strings.TrimSpace(string(t)))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	switch s {
	case "route53":
		s = "route_53"
	case "apigateway":
		s = "api_gateway"
	case "stepfunctions":
		s = "step_functions"
	}
	return ShapeType(s)
}

// StyleFor returns the style for a shape type, falling back to DefaultStyle.
func StyleFor(t ShapeType) string {
	if style, ok := shapeStyles[t.normalize()]; ok {
		return style
	}
	return DefaultStyle
}

// KnownShape reports whether t has a dedicated style.
func KnownShape(t ShapeType) bool {
	_, ok := shapeStyles[t.normalize()]
	return ok
}
