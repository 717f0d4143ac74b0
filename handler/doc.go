/*Package handler adapts transport requests to the provisioning workflows.

It accepts requests from two surfaces with the same semantics: an AWS Lambda
behind API Gateway (payload formats 1.0 and 2.0) and a plain HTTP handler for the
self-hosted server. In both cases the JSON body names a device uuid and optionally
one service on the device, the HTTP method selects the operation (POST creates,
DELETE destroys), and the response is a status code with a short body.

All failures are funneled through the provision package's error taxonomy; the
handler never returns a transport error, it always produces a response.
*/
package handler
