/*Package provision implements the device provisioning and de-provisioning workflows.

Provisioning registers a device in the AWS IoT registry under its fleet uuid: it
creates a thing, issues an active key pair and certificate, attaches the configured
security policy to the certificate, attaches the certificate as a principal of the
thing, and finally distributes the certificate material as fleet variables AWS_CERT
and AWS_PRIVATE_KEY (base64 of the PEM blocks), scoped either to the whole device or
to a single service on it.

De-provisioning reverses the sequence best-effort: it locates the thing's managed
certificate among its principals, detaches and deactivates it, deletes it, deletes
the thing, and removes both fleet variables. Resources that are already gone are
tolerated, so de-provisioning is idempotent.

The workflows run against two narrow interfaces, Registry and VarStore, so that the
AWS IoT client and the fleet API client can be substituted in tests.
*/
package provision
