package identity

// Reserved namespaces. Customer identifier updates never touch them.
const (
	NamespaceECID = "ECID"
	NamespaceGAID = "GAID"
	NamespaceIDFA = "IDFA"
)

// ZeroAdvertisingID is the value platforms report when ad tracking is limited.
const ZeroAdvertisingID = "00000000-0000-0000-0000-000000000000"

// XDM wire keys.
const (
	KeyIdentityMap        = "identityMap"
	KeyID                 = "id"
	KeyAuthenticatedState = "authenticatedState"
	KeyPrimary            = "primary"
)

// Persistence locations.
const (
	DatastoreName   = "com.adobe.edge.identity"
	PropertiesKey   = "identity.properties"
	LegacyDatastore = "com.adobe.module.identity"
	LegacyECIDKey   = "ADOBEMOBILE_PERSISTED_MID"
)

// Shared state owners and keys read during boot.
const (
	LegacyStateOwner = "com.adobe.module.identity"
	LegacyStateECID  = "mid"
	HubStateOwner    = "com.adobe.module.eventhub"
	HubExtensions    = "extensions"
)

var reservedNamespaces = []string{NamespaceECID, NamespaceGAID, NamespaceIDFA}
