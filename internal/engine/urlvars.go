package engine

import (
	"net/url"
	"strconv"
	"strings"
)

// URL variable keys.
const (
	urlPayloadKey = "adobe_mc"
	urlKeyTS      = "TS"
	urlKeyECID    = "MCMID"
	urlKeyOrgID   = "MCORGID"
)

// URLVariables builds the adobe_mc query fragment handed to web views:
//
//	adobe_mc=TS%3D<unix>%7CMCMID%3D<ecid>%7CMCORGID%3D<org>
//
// Pairs with an empty value are left out.
func URLVariables(ts int64, ecid, orgID string) string {
	var parts []string
	for _, kv := range [][2]string{
		{urlKeyTS, strconv.FormatInt(ts, 10)},
		{urlKeyECID, ecid},
		{urlKeyOrgID, orgID},
	} {
		if kv[1] == "" {
			continue
		}
		parts = append(parts, kv[0]+"="+kv[1])
	}
	return urlPayloadKey + "=" + urlEncode(strings.Join(parts, "|"))
}

// urlEncode percent-encodes every byte outside ALPHA / DIGIT / "-" / "." /
// "_" / "~". QueryEscape matches that set except for writing spaces as "+".
func urlEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
