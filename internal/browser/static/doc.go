// Package static implements the crawler page-driver contract without a
// browser: documents are fetched through a colly collector and queried with
// goquery. Forms are submitted by serializing the enclosing <form>, and
// clicking an anchor follows its href. It suits sources that render their
// listings server side, and it backs the integration tests.
package static
