/*Package fleet is a client for the fleet cloud's REST API.

The provisioning workflows use it in two roles: as the device directory that
resolves a device uuid to a device record (and optionally a service name to a
service within the device's application), and as the credential store that holds
the AWS_CERT and AWS_PRIVATE_KEY variables per device or per device service.

The API follows the fleet cloud's OData-style resource model: resources live under
/v6/ and are filtered with $filter expressions. Authentication is a bearer session
token; expired JWT session tokens are rejected client-side before the first call.
*/
package fleet
