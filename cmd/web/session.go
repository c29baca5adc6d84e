package main

// pageIDSessionKey stores the ID of the page session that holds the map and workflow of the browser session.
const pageIDSessionKey = "pageID"
