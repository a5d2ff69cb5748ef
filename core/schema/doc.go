/*
Package schema defines the typed model of an interface-definition document.

A document declares the entities and remote methods of one logical module:

	module: app/auth

	entities:
	  User:
	    primaryKey: [id]
	    fields:
	      id:   { type: integer }
	      name: { type: string, summary: Display name }
	      tags: { type: { listOf: string } }

	methods:
	  User.list:
	    params:
	      filter: { type: { optional: string } }
	    returns:
	      type: { listOf: { $ref: "#/entities/User" } }

	data:
	  User:
	    - { id: 1, name: root }

# Types

A field, parameter or return type is one of:

  - a primitive name: string, integer, number, boolean, date, datetime, time, any, null
  - an array, read as a tuple of the listed types
  - an object with exactly one of $ref, mapOf, listOf, optional, polymorph

References have the form "<document>#<json-pointer>". An empty document part
points into the declaring document, a relative one is resolved against the
declaring document's directory.

# Identity

Every Type has a structural UID. Two types with the same shape share a UID no
matter where they were declared, and a reference to an entity takes the UID of
the entity's qualified name. The code generator uses the UID to emit each
decoding routine once.

# Loading

Documents are not constructed directly. The registry parses, validates and
builds them, caches the instance, then calls ResolveTypes so that references
between documents may form cycles.
*/
package schema
